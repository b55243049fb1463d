/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect"
)

type datePart int

const (
	partDate datePart = iota
	partTime
	partDay
	partMonth
	partYear
)

func (p datePart) String() string {
	switch p {
	case partDate:
		return "date"
	case partTime:
		return "time"
	case partDay:
		return "day"
	case partMonth:
		return "month"
	default:
		return "year"
	}
}

// datePartSQL returns the left-hand expression extracting part from the
// column placeholder and the placeholder for the compared value.
func datePartSQL(name dialect.Name, part datePart) (lhs, rhs string) {
	switch name {
	case dialect.SQLite:
		formats := map[datePart]string{
			partDate:  "%Y-%m-%d",
			partTime:  "%H:%M:%S",
			partDay:   "%d",
			partMonth: "%m",
			partYear:  "%Y",
		}
		return fmt.Sprintf("strftime('%s', ?)", formats[part]), "CAST(? AS TEXT)"
	case dialect.PG:
		switch part {
		case partDate:
			return "CAST(? AS DATE)", "?"
		case partTime:
			return "CAST(? AS TIME)", "?"
		case partDay:
			return "EXTRACT(DAY FROM ?)", "?"
		case partMonth:
			return "EXTRACT(MONTH FROM ?)", "?"
		default:
			return "EXTRACT(YEAR FROM ?)", "?"
		}
	default:
		switch part {
		case partDate:
			return "DATE(?)", "?"
		case partTime:
			return "TIME(?)", "?"
		case partDay:
			return "DAY(?)", "?"
		case partMonth:
			return "MONTH(?)", "?"
		default:
			return "YEAR(?)", "?"
		}
	}
}

// datePartValue converts value into the form the extracted part compares
// against. time.Time values are reduced to the part; SQLite day and month
// numbers are zero padded because strftime returns text.
func datePartValue(name dialect.Name, part datePart, value interface{}) interface{} {
	if t, ok := value.(time.Time); ok {
		switch part {
		case partDate:
			return t.Format("2006-01-02")
		case partTime:
			return t.Format("15:04:05")
		case partDay:
			value = t.Day()
		case partMonth:
			value = int(t.Month())
		default:
			value = t.Year()
		}
	}
	if name == dialect.SQLite && (part == partDay || part == partMonth) {
		if n, ok := value.(int); ok {
			return fmt.Sprintf("%02d", n)
		}
	}
	return value
}
