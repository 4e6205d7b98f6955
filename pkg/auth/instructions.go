package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide prints step-by-step instructions for copying the
// auth_token cookie out of a signed-in browser
func ShowTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "X AUTH TOKEN GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "xmediagrab opens x.com in a browser it controls and signs in by")
	fmt.Fprintln(w, "setting your auth_token cookie. To find it:")
	fmt.Fprintln(w)
	// Browser selection
	fmt.Fprintln(w, "STEP 1: Sign in at https://x.com in your usual browser")
	fmt.Fprintln(w)
	// Developer tools
	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w)
	// Find cookies
	fmt.Fprintln(w, "STEP 3: Application tab (Chrome) or Storage tab (Firefox)")
	fmt.Fprintln(w, "   Expand Cookies and select https://x.com")
	fmt.Fprintln(w)
	// Cookie details
	fmt.Fprintln(w, "STEP 4: Copy the value of the auth_token cookie")
	fmt.Fprintln(w, "   It is a 40 character hexadecimal string.")
	fmt.Fprintln(w)
	// Security warning
	fmt.Fprintln(w, "SECURITY:")
	fmt.Fprintln(w, "   The token gives full access to your account. Never share it.")
	fmt.Fprintln(w, "   Signing out of x.com in the browser invalidates it.")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

// ShowQuickTokenGuide prints a one-line reminder
func ShowQuickTokenGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 -> Application/Storage -> Cookies -> https://x.com -> auth_token")
}
