package sugar

import "strings"

// APIPath is the versioned REST path appended to the server address.
const APIPath = "/rest/v10/"

// APIURL derives the REST base URL from a server address. The scheme
// defaults to http; an explicit http:// or https:// is kept as is.
func APIURL(server string) string {
	server = strings.TrimSpace(server)
	server = strings.TrimSuffix(strings.TrimRight(server, "/"), strings.TrimRight(APIPath, "/"))

	lower := strings.ToLower(server)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		server = "http://" + server
	}

	return strings.TrimRight(server, "/") + APIPath
}
