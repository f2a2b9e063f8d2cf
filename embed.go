package narrator

import "embed"

//go:embed web/*
var WebFiles embed.FS

// ReportTemplate is the html/template source for report.html.
//
//go:embed web/report.html.tmpl
var ReportTemplate string
