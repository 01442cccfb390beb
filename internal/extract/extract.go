// Package extract mines completed agent turns for the embedded complaint
// record and for the spoken end-of-call cue.
package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/utils"
)

var (
	recordBlock = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

	// Hindi or English phrase followed by the 4-digit reference, which the
	// agent sometimes speaks with its SIG- prefix.
	closeCue = regexp.MustCompile(`(?i)(?:शिकायत\s+संख्या\s+है|complaint\s+number\s+is)\s*(?:SIG-?)?\d{4}`)
)

// Record parses the first fenced json block in text. It returns nil, nil when
// there is no block and a RECORD_PARSE error when the block is malformed.
func Record(text string) (*models.Complaint, error) {
	const op = "extract.Record"

	m := recordBlock.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}

	var r looseRecord
	if err := json.Unmarshal([]byte(m[1]), &r); err != nil {
		return nil, utils.E(utils.CodeRecordParse, op, "malformed complaint block", err)
	}
	c := r.complaint()
	if c == (models.Complaint{}) {
		return nil, utils.E(utils.CodeRecordParse, op, "empty complaint block", nil)
	}
	return &c, nil
}

// scalar accepts any JSON value for a record field. The agent sometimes
// writes numbers (phone) or nulls; objects and arrays keep their JSON text.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = scalar(x)
	case json.Number:
		*s = scalar(x.String())
	case bool:
		*s = scalar(strconv.FormatBool(x))
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*s = scalar(buf.String())
	}
	return nil
}

type looseRecord struct {
	ID          scalar `json:"id"`
	Category    scalar `json:"type"`
	Department  scalar `json:"dept"`
	Location    scalar `json:"loc"`
	Status      scalar `json:"status"`
	Date        scalar `json:"date"`
	Phone       scalar `json:"phone"`
	Description scalar `json:"desc"`
	Image       scalar `json:"img"`
}

func (r looseRecord) complaint() models.Complaint {
	return models.Complaint{
		ID:          string(r.ID),
		Category:    string(r.Category),
		Department:  string(r.Department),
		Location:    string(r.Location),
		Status:      string(r.Status),
		Date:        string(r.Date),
		Phone:       string(r.Phone),
		Description: string(r.Description),
		Image:       string(r.Image),
	}
}

// CloseCue reports whether the agent has read out the final complaint number.
func CloseCue(text string) bool {
	return closeCue.MatchString(text)
}

// StripRecord removes the hidden data block so only spoken text remains.
func StripRecord(text string) string {
	return strings.TrimSpace(recordBlock.ReplaceAllString(text, ""))
}
