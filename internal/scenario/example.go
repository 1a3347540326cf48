package scenario

import _ "embed"

// Example is a complete scenario written by `ctg scenario init`.
//
//go:embed example.yml
var Example []byte
