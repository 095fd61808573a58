package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleText decodes a JSON string, bool or number into its text form.
// null decodes to "".
type FlexibleText string

func (f *FlexibleText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexibleText(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		*f = FlexibleText(strconv.FormatBool(b))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexibleText(n.String())
	return nil
}

func (f FlexibleText) String() string {
	return string(f)
}
