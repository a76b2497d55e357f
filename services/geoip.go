package services

import (
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"drtguard/system"
)

// GeoIPService resolves client IPs to country codes for violation audit
// records and alerts. The MaxMind database is optional: without it every
// lookup returns the unknown code and nothing else changes.
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// CountryUnknown is returned when no database is loaded or the IP is
// unroutable.
const CountryUnknown = "XX"

func NewGeoIPService() *GeoIPService {
	return &GeoIPService{}
}

// LoadDatabase opens a GeoLite2/GeoIP2 country database. Failure is logged
// and leaves the service in passthrough mode.
func (g *GeoIPService) LoadDatabase(path string) error {
	reader, err := geoip2.Open(path)
	if err != nil {
		system.Warn("GeoIP database unavailable (%s): %v", path, err)
		return err
	}

	g.mu.Lock()
	if g.reader != nil {
		g.reader.Close()
	}
	g.reader = reader
	g.mu.Unlock()

	system.Info("GeoIP database loaded: %s", path)
	return nil
}

// Country returns the ISO country code for an IP, or CountryUnknown.
func (g *GeoIPService) Country(ipStr string) string {
	g.mu.RLock()
	reader := g.reader
	g.mu.RUnlock()

	if reader == nil {
		return CountryUnknown
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return CountryUnknown
	}
	record, err := reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return CountryUnknown
	}
	return record.Country.IsoCode
}

// Close releases the database handle.
func (g *GeoIPService) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader != nil {
		g.reader.Close()
		g.reader = nil
	}
}
