package utils

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// GetIPAddress tries different methods to get the real IP address
func GetIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		// Take the first non-private IP from X-Forwarded-For
		for _, ip := range ips {
			trimmedIP := strings.TrimSpace(ip)
			parsedIP := net.ParseIP(trimmedIP)
			if parsedIP != nil && !isPrivateIP(parsedIP) {
				return trimmedIP
			}
		}
	}

	// Check X-Real-IP header
	if xRealIP := r.Header.Get("X-Real-IP"); xRealIP != "" {
		if parsedIP := net.ParseIP(xRealIP); parsedIP != nil {
			return xRealIP
		}
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// Try RemoteAddr directly if SplitHostPort fails
		return r.RemoteAddr
	}
	return ip
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

type LocationInfo struct {
	Country string
	Region  string
	City    string
	Zip     string
}

// GetLocationInfo extracts the city-level location of an IP from the GeoIP
// database. Empty fields mean the database had no data for that IP.
func GetLocationInfo(geoipDB *geoip2.Reader, ipAddress string) LocationInfo {
	var info LocationInfo

	parsedIP := net.ParseIP(ipAddress)
	if geoipDB == nil || parsedIP == nil {
		return info
	}

	record, err := geoipDB.City(parsedIP)
	if err != nil {
		return info
	}

	info.Country = record.Country.IsoCode
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}
	info.City = record.City.Names["en"]
	info.Zip = record.Postal.Code
	return info
}
