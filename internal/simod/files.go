package simod

import "strings"

// EventLogExt infers the extension for an uploaded event log from its content
// type or filename. Simod accepts CSV and XES logs; CSV is the default.
func EventLogExt(contentType, filename string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv") || strings.HasSuffix(filename, ".csv"):
		return ".csv"
	case strings.Contains(ct, "xml") || strings.HasSuffix(filename, ".xes"):
		return ".xes"
	case strings.HasSuffix(filename, ".xml"):
		return ".xml"
	default:
		return ".csv"
	}
}

// ConfigExt infers the extension for an uploaded Simod configuration.
func ConfigExt(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return ".yaml"
	}
	return ".json"
}

// MediaType maps a result filename to the content type it is served with.
func MediaType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	case strings.HasSuffix(filename, ".xml"),
		strings.HasSuffix(filename, ".xes"),
		strings.HasSuffix(filename, ".bpmn"):
		return "application/xml"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	case strings.HasSuffix(filename, ".png"):
		return "image/png"
	case strings.HasSuffix(filename, ".jpg"), strings.HasSuffix(filename, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(filename, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(filename, ".txt"):
		return "text/plain"
	case strings.HasSuffix(filename, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(filename, ".tar"):
		return "application/tar"
	default:
		return "application/octet-stream"
	}
}
