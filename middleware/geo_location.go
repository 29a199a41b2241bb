package middleware

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// GeoLocation represents the geolocation information for an IP.
type GeoLocation struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Country     string  `json:"country_name"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Describe renders the location as "City, Region, Country", skipping blanks.
// Unknown locations render as "".
func (g *GeoLocation) Describe() string {
	if g == nil || g.Country == "" || g.Country == "Unknown" {
		return ""
	}
	var parts []string
	for _, p := range []string{g.City, g.Region, g.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// GeoLocator resolves client IPs through an ipapi.co compatible API and
// caches the answers in memory.
type GeoLocator struct {
	client *resty.Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*GeoLocation
}

// NewGeoLocator builds a locator against baseURL, e.g. https://ipapi.co.
func NewGeoLocator(baseURL string, logger *zap.Logger) *GeoLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(5 * time.Second)
	return &GeoLocator{client: client, logger: logger, cache: make(map[string]*GeoLocation)}
}

func unknownLocation(ip string) *GeoLocation {
	return &GeoLocation{IP: ip, Country: "Unknown"}
}

// isPrivateIP checks if an IP is private or loopback.
func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed == nil || parsed.IsLoopback() || parsed.IsPrivate()
}

// Locate never fails; lookups that cannot be answered yield an unknown location.
func (g *GeoLocator) Locate(ip string) *GeoLocation {
	g.mu.RLock()
	if geo, ok := g.cache[ip]; ok {
		g.mu.RUnlock()
		return geo
	}
	g.mu.RUnlock()

	geo := unknownLocation(ip)
	if !isPrivateIP(ip) {
		var result GeoLocation
		resp, err := g.client.R().SetResult(&result).Get("/" + ip + "/json/")
		switch {
		case err != nil:
			g.logger.Warn("geolocation lookup failed", zap.String("ip", ip), zap.Error(err))
		case resp.IsError():
			g.logger.Warn("geolocation API returned non-OK status", zap.String("ip", ip), zap.Int("status", resp.StatusCode()))
		case result.Country != "":
			result.IP = ip
			geo = &result
		}
	}

	g.mu.Lock()
	g.cache[ip] = geo
	g.mu.Unlock()
	return geo
}

// Middleware stores the caller's location under "geoLocation".
func (g *GeoLocator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("geoLocation", g.Locate(getClientIP(c)))
		c.Next()
	}
}

// LocationFromContext returns the description stored by GeoLocator.Middleware.
func LocationFromContext(c *gin.Context) string {
	if v, ok := c.Get("geoLocation"); ok {
		if geo, ok := v.(*GeoLocation); ok {
			return geo.Describe()
		}
	}
	return ""
}
