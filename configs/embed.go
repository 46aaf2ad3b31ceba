// Package configs provides embedded templates for 'travelcs init'.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution. To change a template, edit the file in this
// directory and rebuild.
package configs

import _ "embed"

// ConfigTemplate is the annotated travelcs.yaml written by 'travelcs init'.
//
//go:embed travelcs.example.yaml
var ConfigTemplate string

// SampleProducts seeds documents/products.yaml with example travel
// products so a fresh install has something to index.
//
//go:embed sample-products.yaml
var SampleProducts string

// SampleFAQs seeds documents/faqs.yaml.
//
//go:embed sample-faqs.yaml
var SampleFAQs string

// SampleRefundPolicy seeds documents/refund-policy.md.
//
//go:embed sample-refund-policy.md
var SampleRefundPolicy string
