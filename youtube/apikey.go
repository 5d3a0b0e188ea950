/*
DESCRIPTION
  apikey.go resolves the Data API key from the environment, a local
  file or a Google Storage bucket.

LICENSE
  Copyright (C) 2025 the YouTube Live Chat DB System authors.

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// gsbScheme is the URL scheme of a Google Storage bucket object.
const gsbScheme = "gs://"

// ErrNoAPIKey is returned when no API key source is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// APIKey resolves the Data API key. The YOUTUBE_API_KEY environment
// variable, if set, is the key itself. Otherwise param locates the
// key: a gs:// bucket object or a local file. Resolution is lazy so a
// process that never calls the Data API (e.g., a collector connected
// to a fake source in tests) needs no key configured.
func APIKey(ctx context.Context, param string) (string, error) {
	if key := os.Getenv("YOUTUBE_API_KEY"); key != "" {
		return key, nil
	}
	if param == "" {
		return "", ErrNoAPIKey
	}

	var data []byte
	var err error
	if strings.HasPrefix(param, gsbScheme) {
		data, err = readStorageBucket(ctx, param)
	} else {
		data, err = os.ReadFile(param)
	}
	if err != nil {
		return "", fmt.Errorf("cannot read API key from %s: %w", param, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("API key at %s is empty", param)
	}
	return key, nil
}

// readStorageBucket reads the contents of the Google Storage bucket
// object specified by the URL, which takes the form
// gs://<bucket_name>/<object_name>.
func readStorageBucket(ctx context.Context, url string) ([]byte, error) {
	url = url[len(gsbScheme):]
	sep := strings.IndexByte(url, '/')
	if sep == -1 {
		return nil, fmt.Errorf("invalid bucket URL: %s", url)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create storage client: %w", err)
	}
	r, err := client.Bucket(url[:sep]).Object(url[sep+1:]).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read bucket object: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
