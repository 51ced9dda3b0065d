/*
Copyright © 2024 the ARTMIPStandardizer authors.
This file is part of ARTMIPStandardizer.

ARTMIPStandardizer is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ARTMIPStandardizer is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ARTMIPStandardizer.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command artmipstd is a command-line interface for standardizing ARTMIP
// atmospheric-river detection output against its reference dataset.
package main

import (
	"fmt"
	"os"

	"github.com/taobrienlbl/ARTMIPStandardizer/artmiputil"
)

func main() {
	if err := artmiputil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
