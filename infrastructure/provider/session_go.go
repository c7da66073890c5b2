//go:build !ORT

package provider

import "github.com/knights-analytics/hugot"

func newLocalSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
