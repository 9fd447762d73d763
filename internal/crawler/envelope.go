package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SuccessOK is the envelope success flag for a logically valid response.
const SuccessOK = 1

// Envelope is the {success, data} wrapper shared by both endpoints.
type Envelope struct {
	Success int             `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Column is one classification label attached to a listing record.
type Column struct {
	Code string `json:"column_code"`
	Name string `json:"column_name"`
}

// Record is one announcement row from the listing endpoint.
type Record struct {
	ArtCode    string   `json:"art_code"`
	Title      string   `json:"title"`
	NoticeDate string   `json:"notice_date"`
	Columns    []Column `json:"columns"`
}

// Label returns the record's primary classification label.
func (r Record) Label() string {
	for _, c := range r.Columns {
		if name := strings.TrimSpace(c.Name); name != "" {
			return name
		}
	}
	return ""
}

// ListingPage is the data section of a listing response.
type ListingPage struct {
	TotalHits int      `json:"total_hits"`
	List      []Record `json:"list"`
}

// Security identifies the issuer of an announcement.
type Security struct {
	Stock     string `json:"stock"`
	ShortName string `json:"short_name"`
}

// Detail is the data section of a detail response.
type Detail struct {
	ArtCode     string     `json:"art_code"`
	AttachURL   string     `json:"attach_url"`
	AttachSize  SizeKB     `json:"attach_size"`
	Security    []Security `json:"security"`
	NoticeTitle string     `json:"notice_title"`
	NoticeDate  string     `json:"notice_date"`
}

// SizeKB is a declared document size in kilobytes. The endpoint sends it as a
// numeric string; plain numbers and empty values are accepted too.
type SizeKB int64

// UnmarshalJSON accepts "123", 123, "" and null.
func (s *SizeKB) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode attach_size: %w", err)
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("attach_size %q is not numeric: %w", raw, err)
	}
	*s = SizeKB(f)
	return nil
}

// DecodeEnvelope parses payload and enforces the success sentinel.
func DecodeEnvelope(payload json.RawMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, &Failure{Kind: ErrParse, Op: "decode envelope", Err: err}
	}
	if env.Success != SuccessOK {
		return Envelope{}, &Failure{Kind: ErrLogical, Op: "decode envelope", Err: fmt.Errorf("success flag is %d", env.Success)}
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return Envelope{}, &Failure{Kind: ErrLogical, Op: "decode envelope", Err: fmt.Errorf("missing data")}
	}
	return env, nil
}

// DecodeListing unwraps a listing response.
func DecodeListing(payload json.RawMessage) (ListingPage, error) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return ListingPage{}, err
	}
	var page ListingPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return ListingPage{}, &Failure{Kind: ErrParse, Op: "decode listing", Err: err}
	}
	return page, nil
}

// DecodeDetail unwraps a detail response.
func DecodeDetail(payload json.RawMessage) (Detail, error) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return Detail{}, err
	}
	var detail Detail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		return Detail{}, &Failure{Kind: ErrParse, Op: "decode detail", Err: err}
	}
	return detail, nil
}
