/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package codec

import (
	"encoding/json"
	"strconv"
	"strings"
)

func jsonNumberFromInt64(i int64) json.Number {
	return json.Number(strconv.FormatInt(i, 10))
}

func jsonNumberFromFloat64(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// isIntegerLiteral reports whether a JSON number's literal text has an
// integer shape (no fraction or exponent), as opposed to a value that is
// merely integral (e.g. "1e2" is not an integer literal even though it
// names the integer 100).
func isIntegerLiteral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}
