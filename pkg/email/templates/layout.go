package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Tone selects the accent color of a message.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

func (t Tone) color() string {
	switch t {
	case ToneSuccess:
		return "#16a34a"
	case ToneWarning:
		return "#d97706"
	case ToneDanger:
		return "#dc2626"
	default:
		return "#2563eb"
	}
}

// NoticeData fills the Notice layout.
type NoticeData struct {
	Product      string
	Title        string
	Paragraphs   []string
	ActionLabel  string
	ActionURL    string
	SupportEmail string
	Tone         Tone
}

// Notice is a single-column message with an optional call to action.
func Notice(d NoticeData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.write(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		ew.write(templ.EscapeString(d.Title))
		ew.write(`</title></head><body style="margin:0;padding:24px;background:#f4f4f5;font-family:Helvetica,Arial,sans-serif;">`)
		ew.write(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">`)
		ew.write(`<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;border-top:4px solid `)
		ew.write(d.Tone.color())
		ew.write(`;"><tr><td style="padding:32px;">`)
		if d.Product != "" {
			ew.write(`<p style="margin:0 0 16px;color:#71717a;font-size:13px;">`)
			ew.write(templ.EscapeString(d.Product))
			ew.write(`</p>`)
		}
		ew.write(`<h1 style="margin:0 0 16px;font-size:20px;color:#18181b;">`)
		ew.write(templ.EscapeString(d.Title))
		ew.write(`</h1>`)
		for _, p := range d.Paragraphs {
			ew.write(`<p style="margin:0 0 12px;font-size:15px;line-height:22px;color:#3f3f46;">`)
			ew.write(templ.EscapeString(p))
			ew.write(`</p>`)
		}
		if d.ActionURL != "" && d.ActionLabel != "" {
			ew.write(`<p style="margin:24px 0;"><a href="`)
			ew.write(templ.EscapeString(string(templ.URL(d.ActionURL))))
			ew.write(`" style="display:inline-block;padding:12px 20px;border-radius:6px;color:#ffffff;text-decoration:none;background:`)
			ew.write(d.Tone.color())
			ew.write(`;">`)
			ew.write(templ.EscapeString(d.ActionLabel))
			ew.write(`</a></p>`)
		}
		if d.SupportEmail != "" {
			ew.write(`<p style="margin:24px 0 0;font-size:12px;color:#a1a1aa;">Questions? Reply to this email or write to `)
			ew.write(templ.EscapeString(d.SupportEmail))
			ew.write(`.</p>`)
		}
		ew.write(`</td></tr></table></td></tr></table></body></html>`)
		return ew.err
	})
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) write(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}
