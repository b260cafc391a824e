package sprest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nlstn/go-sprest/internal/observability"
)

// UploadOption configures UploadFile.
type UploadOption func(*uploadConfig)

type uploadConfig struct {
	progress  func(sent int64)
	overwrite bool
	exactName bool
	request   []RequestOption
}

// WithProgress reports the number of bytes streamed so far. fn is called
// from the goroutine reading the request body.
func WithProgress(fn func(sent int64)) UploadOption {
	return func(uc *uploadConfig) {
		uc.progress = fn
	}
}

// WithOverwrite replaces an existing file of the same name.
func WithOverwrite() UploadOption {
	return func(uc *uploadConfig) {
		uc.overwrite = true
	}
}

// WithExactName uploads under name as given, without the timestamp prefix.
func WithExactName() UploadOption {
	return func(uc *uploadConfig) {
		uc.exactName = true
	}
}

// WithUploadRequestOptions applies opts to every request of the upload.
func WithUploadRequestOptions(opts ...RequestOption) UploadOption {
	return func(uc *uploadConfig) {
		uc.request = append(uc.request, opts...)
	}
}

// countingReader counts bytes read through it.
type countingReader struct {
	r        io.Reader
	n        atomic.Int64
	progress func(int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		sent := cr.n.Add(int64(n))
		if cr.progress != nil {
			cr.progress(sent)
		}
	}
	return n, err
}

// UploadFile adds a file to the root folder of a document library and
// returns the list item behind it. The stored name is prefixed with the
// current Unix time in milliseconds so that repeated uploads of the same
// file do not collide, unless WithExactName is given. When metadata is
// non-nil the item is updated with it after the upload.
func (c *Client) UploadFile(ctx context.Context, list, name string, content io.Reader, metadata any, opts ...UploadOption) (Item, error) {
	if name == "" {
		return nil, fmt.Errorf("sprest: upload to %q: file name is required", list)
	}
	var uc uploadConfig
	for _, opt := range opts {
		opt(&uc)
	}
	rc := applyRequestOptions(uc.request)

	fileName := name
	if !uc.exactName {
		fileName = strconv.FormatInt(c.now().UnixMilli(), 10) + name
	}

	if content == nil {
		content = strings.NewReader("")
	}
	var size int64
	if l, ok := content.(interface{ Len() int }); ok {
		size = int64(l.Len())
	}
	body := &countingReader{r: content, progress: uc.progress}
	endpoint := listPath(list) + "/RootFolder/Files/Add(url=" + literal(fileName) +
		",overwrite=" + strconv.FormatBool(uc.overwrite) + ")"
	resp, err := c.do(ctx, request{
		operation:   observability.OpUpload,
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        body,
		size:        size,
		contentType: octetStream,
		list:        list,
		cfg:         rc,
	})
	if err != nil {
		return nil, err
	}
	c.observability.Metrics().RecordUpload(ctx, list, body.n.Load())

	file, err := resp.Item()
	if err != nil {
		return nil, err
	}
	link, err := file.DeferredURI("ListItemAllFields")
	if err != nil {
		return nil, fmt.Errorf("%w: uploaded file has no list item link: %v", ErrUnexpectedResponse, err)
	}

	resp, err = c.do(ctx, request{
		operation: observability.OpGet,
		method:    http.MethodGet,
		endpoint:  webRelative(link),
		list:      list,
		cfg:       rc,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch uploaded item: %w", err)
	}
	item, err := resp.Item()
	if err != nil {
		return nil, err
	}

	if metadata == nil {
		return item, nil
	}
	if err := c.UpdateListItem(ctx, list, item.ID(), metadata, uc.request...); err != nil {
		return nil, fmt.Errorf("update uploaded item %d: %w", item.ID(), err)
	}
	return item, nil
}

// webRelative rewrites an absolute _api link to a path relative to the web.
// Links that do not contain /_api/web/ are returned unchanged.
func webRelative(link string) string {
	idx := strings.Index(strings.ToLower(link), "/_api/web/")
	if idx < 0 {
		return link
	}
	return "/_api/Web/" + link[idx+len("/_api/web/"):]
}

func folderPath(serverRelativeURL string) string {
	return "/_api/web/GetFolderByServerRelativeUrl(" + literal(serverRelativeURL) + ")"
}

// FetchLibraryFolders returns the subfolders of a folder. folder is a
// server-relative URL such as "/sites/hr/Shared Documents".
func (c *Client) FetchLibraryFolders(ctx context.Context, folder, query string, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, "", withQuery(folderPath(folder)+"/Folders", query), opts)
}

// FetchLibraryFiles returns the files of a folder.
func (c *Client) FetchLibraryFiles(ctx context.Context, folder, query string, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, "", withQuery(folderPath(folder)+"/Files", query), opts)
}

// FetchLibraryFoldersAndFiles returns the subfolders and files of a folder
// in a single request.
func (c *Client) FetchLibraryFoldersAndFiles(ctx context.Context, folder string, opts ...RequestOption) (folders, files []Item, err error) {
	entry, err := c.getItem(ctx, "", folderPath(folder)+"?$expand=Folders,Files", opts)
	if err != nil {
		return nil, nil, err
	}
	if folders, err = entry.Expanded("Folders"); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if files, err = entry.Expanded("Files"); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return folders, files, nil
}
