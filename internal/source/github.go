package source

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
)

// GitHub tarballs wrap everything in a <owner>-<repo>-<sha>/ directory
// that has to be stripped while extracting.
var tarballRootRegex = regexp.MustCompile("^[^/]*/")

func downloadGitHubTarball(ctx context.Context, owner string, repo string, revision *string, token *string, destinationDir string) error {
	url := "https://api.github.com/repos/" + owner + "/" + repo + "/tarball"
	if revision != nil {
		url += "/" + *revision
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != nil {
		req.Header.Add("Authorization", "Bearer "+*token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("source: tarball request for %s/%s returned status %d", owner, repo, res.StatusCode)
	}

	return untar(destinationDir, res.Body)
}

func untar(destinationDir string, tarSource io.Reader) error {
	gzipReader, err := gzip.NewReader(tarSource)
	if err != nil {
		return err
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		case header == nil:
			continue
		}

		target := filepath.Join(destinationDir, tarballRootRegex.ReplaceAllString(header.Name, ""))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}

			file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, tarReader); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		}
	}
}
