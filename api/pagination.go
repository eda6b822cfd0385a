// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultBatchListCount = 25
	maxBatchListCount     = 100

	headerTotalCount = "X-Total-Count"
	headerTotalPages = "X-Total-Pages"
)

var ErrInvalidListQuery = errors.New("invalid list query")

// batchListQuery selects one page of the batch history. Batch IDs are
// sequential, so ascending order is creation order.
type batchListQuery struct {
	Page  int
	Count int
	Desc  bool
}

// parseBatchListQuery reads page, count and order from the query string.
// Count is clamped to maxBatchListCount and page starts at 1.
func parseBatchListQuery(r *http.Request) (batchListQuery, error) {
	q := batchListQuery{
		Page:  1,
		Count: defaultBatchListCount,
	}
	values := r.URL.Query()
	var err error
	if q.Count, err = intParam(values.Get("count"), q.Count); err != nil {
		return batchListQuery{}, fmt.Errorf("%w: count: %w", ErrInvalidListQuery, err)
	}
	if q.Page, err = intParam(values.Get("page"), q.Page); err != nil {
		return batchListQuery{}, fmt.Errorf("%w: page: %w", ErrInvalidListQuery, err)
	}
	switch strings.ToLower(values.Get("order")) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return batchListQuery{}, fmt.Errorf(
			"%w: order must be asc or desc",
			ErrInvalidListQuery,
		)
	}
	q.Count = min(max(q.Count, 1), maxBatchListCount)
	q.Page = max(q.Page, 1)
	return q, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// writeListHeaders reports the total number of batches and pages for q
func writeListHeaders(w http.ResponseWriter, total int, q batchListQuery) {
	total = max(total, 0)
	pages := 0
	if q.Count > 0 {
		pages = (total + q.Count - 1) / q.Count
	}
	w.Header().Set(headerTotalCount, strconv.Itoa(total))
	w.Header().Set(headerTotalPages, strconv.Itoa(pages))
}
