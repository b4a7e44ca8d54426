package auth

import (
	"fmt"
	"strings"
)

var siteGuides = map[string]struct {
	origin string
	fields string
}{
	SitePixiv: {"https://www.pixiv.net", "Cookie header (must include PHPSESSID)"},
	SiteNijie: {"https://nijie.info", "Cookie header (must include NIJIEIJIEID and nijie_tok)"},
	SiteSkeb:  {"https://skeb.jp", "Bearer token from the Authorization header of any /api request"},
}

// ShowSessionGuide prints how to copy a logged-in session for site out of a browser
func ShowSessionGuide(site string) {
	guide, ok := siteGuides[site]
	if !ok {
		fmt.Printf("No guide for %q. Known sites: %s\n", site, strings.Join(KnownSites, ", "))
		return
	}

	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("SESSION SETUP: %s\n", strings.ToUpper(site))
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
	fmt.Printf("1. Log in at %s in your browser.\n", guide.origin)
	fmt.Println("2. Open Developer Tools (F12, or Cmd+Option+I on macOS) and select Network.")
	fmt.Println("3. Reload the page and click any request to the site.")
	fmt.Printf("4. Under Request Headers copy the %s.\n", guide.fields)
	fmt.Println()
	fmt.Println("The value grants full access to your account. It is stored in the system")
	fmt.Println("keychain or an encrypted file, and can be removed with 'mediakeeper auth logout'.")
	fmt.Println(strings.Repeat("=", 72))
}

// ShowQuickGuide prints a one-line reminder for site
func ShowQuickGuide(site string) {
	if guide, ok := siteGuides[site]; ok {
		fmt.Printf("%s: F12 → Network → reload %s → copy the %s\n", site, guide.origin, guide.fields)
	}
}
