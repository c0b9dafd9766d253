// flex_list.go
//
// Lenient name list decoding for qatrack request bodies
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NameList is a list of reference names as sent by the forms. It accepts a
// JSON array of strings, an array of {"name": ...} objects, or one string
// holding comma separated names.
type NameList []string

// UnmarshalJSON implements the json.Unmarshaler interface.
func (n *NameList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*n = NameList{}
		return nil
	}

	// A single string, possibly comma separated
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = splitNames(s)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("NameList: expected a string or an array")
	}

	names := make(NameList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("NameList: unexpected item %s", item)
		}
		names = append(names, obj.Name)
	}
	*n = names
	return nil
}

// Ptr returns the names as a slice pointer, nil when the field was absent.
func (n *NameList) Ptr() *[]string {
	if n == nil {
		return nil
	}
	s := []string(*n)
	return &s
}

func splitNames(s string) NameList {
	parts := strings.Split(s, ",")
	out := make(NameList, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
