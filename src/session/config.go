package session

import (
	"net/http"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/config"
)

// DefaultCookieName is the session cookie name
const DefaultCookieName = "cex.sid"

// Config is the cookie and store policy of the session layer
type Config struct {
	CookieName string
	Path       string
	Domain     string
	TTL        time.Duration
	Secure     bool
	HTTPOnly   bool
	SameSite   http.SameSite
	// TrustProxy makes the router honor X-Forwarded-* from TrustedProxies
	TrustProxy     bool
	TrustedProxies []string
	// Rolling extends the session on activity
	Rolling bool
}

// NewConfig selects the session policy for the active environment.
// Production gets Secure cookies, SameSite=Strict and proxy trust; development
// relaxes both so the app works over plain http on localhost.
func NewConfig(cfg *config.Config) Config {
	c := Config{
		CookieName: DefaultCookieName,
		Path:       "/",
		Domain:     cfg.SessionCookieDomain,
		TTL:        cfg.SessionTTL,
		HTTPOnly:   true,
		Rolling:    true,
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}

	if cfg.IsProduction() {
		c.Secure = true
		c.SameSite = http.SameSiteStrictMode
		c.TrustProxy = true
		c.TrustedProxies = cfg.TrustedProxies
		if len(c.TrustedProxies) == 0 {
			c.TrustedProxies = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.1"}
		}
		return c
	}

	c.Secure = false
	c.SameSite = http.SameSiteLaxMode
	if len(cfg.TrustedProxies) > 0 {
		c.TrustProxy = true
		c.TrustedProxies = cfg.TrustedProxies
	}
	return c
}

// Proxies returns the proxy list the router should trust, nil when proxy trust is off
func (c Config) Proxies() []string {
	if !c.TrustProxy {
		return nil
	}
	return c.TrustedProxies
}
