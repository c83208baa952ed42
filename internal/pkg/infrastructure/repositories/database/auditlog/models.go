package auditlog

import "gorm.io/gorm"

// APILog captures a single handled request and the response it produced.
type APILog struct {
	gorm.Model

	Method          string `gorm:"index"`
	URL             string
	RequestHeaders  string
	RequestBody     string
	ResponseStatus  int
	ResponseHeaders string
	ResponseBody    string
}
