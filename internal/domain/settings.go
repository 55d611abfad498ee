package domain

import "regexp"

// ConnectionSettings are the host-stored connection parameters. Which fields
// are required depends on the selected server type.
type ConnectionSettings struct {
	ServerType string   `json:"serverType" mapstructure:"server_type"`
	URL        string   `json:"url" mapstructure:"url"`
	Room       RoomName `json:"room" mapstructure:"room"`
	Username   string   `json:"username" mapstructure:"username"`
	Password   string   `json:"password" mapstructure:"password"`
}

var uriSchemeRe = regexp.MustCompile(`^(?:[a-zA-Z\d]+://)+(.*)$`)

// StripScheme removes an accidental protocol prefix from a configured server
// URL. The dial scheme is decided by the client, never by configuration.
func StripScheme(url string) (string, bool) {
	m := uriSchemeRe.FindStringSubmatch(url)
	if m == nil {
		return url, false
	}
	return m[1], true
}
