package sprest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nlstn/go-sprest/internal/observability"
	"github.com/nlstn/go-sprest/internal/skiptoken"
	"golang.org/x/net/html"
)

func listPath(list string) string {
	return "/_api/web/lists/GetByTitle(" + literal(list) + ")"
}

// getList performs a GET tagged with the list name for tracing.
func (c *Client) getList(ctx context.Context, list, endpoint string, opts []RequestOption) (*Response, error) {
	return c.do(ctx, request{
		operation: observability.OpGet,
		method:    http.MethodGet,
		endpoint:  endpoint,
		list:      list,
		cfg:       applyRequestOptions(opts),
	})
}

func (c *Client) getItems(ctx context.Context, list, endpoint string, opts []RequestOption) ([]Item, error) {
	resp, err := c.getList(ctx, list, endpoint, opts)
	if err != nil {
		return nil, err
	}
	items, _, err := resp.Items()
	if err != nil {
		return nil, err
	}
	c.observability.Metrics().RecordResultCount(ctx, list, int64(len(items)))
	return items, nil
}

func (c *Client) getItem(ctx context.Context, list, endpoint string, opts []RequestOption) (Item, error) {
	resp, err := c.getList(ctx, list, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return resp.Item()
}

// FetchAllLists returns every list of the web.
func (c *Client) FetchAllLists(ctx context.Context, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, "", "/_api/web/lists", opts)
}

// FetchListID returns the GUID of a list.
func (c *Client) FetchListID(ctx context.Context, list string, opts ...RequestOption) (string, error) {
	item, err := c.getItem(ctx, list, listPath(list)+"?$select=Id", opts)
	if err != nil {
		return "", err
	}
	return item.String("Id"), nil
}

// FetchListDefaultViewID returns the GUID of a list's default view.
func (c *Client) FetchListDefaultViewID(ctx context.Context, list string, opts ...RequestOption) (string, error) {
	item, err := c.getItem(ctx, list, listPath(list)+"/DefaultView?$select=Id", opts)
	if err != nil {
		return "", err
	}
	return item.String("Id"), nil
}

// FetchList returns a list's properties.
func (c *Client) FetchList(ctx context.Context, list string, opts ...RequestOption) (Item, error) {
	return c.getItem(ctx, list, listPath(list), opts)
}

// FetchListProperties returns a list's properties shaped by query, typically
// a QuerySpec rendered with String().
func (c *Client) FetchListProperties(ctx context.Context, list, query string, opts ...RequestOption) (Item, error) {
	return c.getItem(ctx, list, withQuery(listPath(list), query), opts)
}

// FetchListItemEntityType returns the entity type name SharePoint expects in
// the __metadata of item payloads, e.g. "SP.Data.TasksListItem".
func (c *Client) FetchListItemEntityType(ctx context.Context, list string, opts ...RequestOption) (string, error) {
	item, err := c.getItem(ctx, list, listPath(list)+"?$select=ListItemEntityTypeFullName", opts)
	if err != nil {
		return "", err
	}
	return item.String("ListItemEntityTypeFullName"), nil
}

// FetchListFields returns the fields (columns) of a list.
func (c *Client) FetchListFields(ctx context.Context, list string, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, list, listPath(list)+"/Fields", opts)
}

// FetchListFieldDetails returns a single field of a list by title.
func (c *Client) FetchListFieldDetails(ctx context.Context, list, field string, opts ...RequestOption) (Item, error) {
	return c.getItem(ctx, list, listPath(list)+"/Fields/GetByTitle("+literal(field)+")", opts)
}

// FetchListItems returns the first page of a list's items.
func (c *Client) FetchListItems(ctx context.Context, list string, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, list, listPath(list)+"/Items", opts)
}

// FetchListItemsQuery returns the first page of a list's items shaped by query.
//
//	q := sprest.QuerySpec{
//	    Select: []string{"Id", "Title", "Author/Title"},
//	    Expand: []string{"Author"},
//	    And:    sprest.NewConditions("Status", "eq 'Open'"),
//	}
//	items, err := client.FetchListItemsQuery(ctx, "Tasks", q.String())
func (c *Client) FetchListItemsQuery(ctx context.Context, list, query string, opts ...RequestOption) ([]Item, error) {
	return c.getItems(ctx, list, withQuery(listPath(list)+"/Items", query), opts)
}

// FetchAllListItems returns every item matching query, following __next
// links until the last page. A next link whose $skiptoken repeats the
// previous one fails with ErrUnexpectedResponse.
func (c *Client) FetchAllListItems(ctx context.Context, list, query string, opts ...RequestOption) ([]Item, error) {
	var all []Item
	var lastToken string
	endpoint := withQuery(listPath(list)+"/Items", query)
	for page := 1; endpoint != ""; page++ {
		resp, err := c.getList(ctx, list, endpoint, opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		items, next, err := resp.Items()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)
		if next != "" {
			tok, ok, err := skiptoken.FromURL(next)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w: %v", page, ErrUnexpectedResponse, err)
			}
			if ok {
				if tok.String() == lastToken {
					return nil, fmt.Errorf("page %d: %w: paging token %q did not advance", page, ErrUnexpectedResponse, lastToken)
				}
				lastToken = tok.String()
				lastID, _ := tok.LastID()
				c.logger.Debug("Fetching next page", observability.LogFieldList, list, "page", page+1, "after_id", lastID)
			}
		}
		endpoint = next
		if err := ctx.Err(); err != nil && endpoint != "" {
			return nil, err
		}
	}
	c.observability.Metrics().RecordResultCount(ctx, list, int64(len(all)))
	return all, nil
}

// FetchListItemByID returns a single item.
func (c *Client) FetchListItemByID(ctx context.Context, list string, id int, opts ...RequestOption) (Item, error) {
	return c.getItem(ctx, list, itemPath(list, id), opts)
}

func itemPath(list string, id int) string {
	return listPath(list) + "/GetItemById(" + strconv.Itoa(id) + ")"
}

// ListItemCount returns the number of items in a list.
func (c *Client) ListItemCount(ctx context.Context, list string, opts ...RequestOption) (int, error) {
	resp, err := c.getList(ctx, list, listPath(list)+"/ItemCount", opts)
	if err != nil {
		return 0, err
	}
	var n int
	if err := resp.scalar("ItemCount", &n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListItemCountQuery returns the number of items matching query using the
// legacy listdata.svc $count endpoint, which answers in plain text.
func (c *Client) ListItemCountQuery(ctx context.Context, list, query string, opts ...RequestOption) (int, error) {
	endpoint := withQuery("/_vti_bin/listdata.svc/"+strings.ReplaceAll(list, " ", "")+"/$count", query)
	resp, err := c.getList(ctx, list, endpoint, opts)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(resp.Body), "\ufeff")))
	if err != nil {
		return 0, fmt.Errorf("%w: count %q: %v", ErrUnexpectedResponse, resp.Body, err)
	}
	return n, nil
}

// AddListItem creates an item. data is encoded as verbose JSON; SharePoint
// expects it to carry {"__metadata": {"type": <entity type>}} (see
// FetchListItemEntityType).
func (c *Client) AddListItem(ctx context.Context, list string, data any, opts ...RequestOption) (Item, error) {
	body, err := jsonBody(data)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{
		operation:   observability.OpCreate,
		method:      http.MethodPost,
		endpoint:    listPath(list) + "/Items",
		body:        body,
		contentType: verboseJSON,
		list:        list,
		cfg:         applyRequestOptions(opts),
	})
	if err != nil {
		return nil, err
	}
	return resp.Item()
}

// UpdateListItem merges data into an existing item.
func (c *Client) UpdateListItem(ctx context.Context, list string, id int, data any, opts ...RequestOption) error {
	body, err := jsonBody(data)
	if err != nil {
		return err
	}
	rc := applyRequestOptions(opts)
	_, err = c.do(ctx, request{
		operation:   observability.OpUpdate,
		method:      http.MethodPatch,
		endpoint:    itemPath(list, id),
		body:        body,
		contentType: verboseJSON,
		xHTTPMethod: http.MethodPatch,
		ifMatch:     rc.ifMatch(),
		list:        list,
		cfg:         rc,
	})
	return err
}

// DeleteListItem deletes an item.
func (c *Client) DeleteListItem(ctx context.Context, list string, id int, opts ...RequestOption) error {
	rc := applyRequestOptions(opts)
	_, err := c.do(ctx, request{
		operation:   observability.OpDelete,
		method:      http.MethodDelete,
		endpoint:    itemPath(list, id),
		xHTTPMethod: http.MethodDelete,
		ifMatch:     rc.ifMatch(),
		list:        list,
		cfg:         rc,
	})
	return err
}

// FetchListUniqueValues returns the distinct values of a field as offered by
// the list's column filter menu (/_layouts/15/filter.aspx).
func (c *Client) FetchListUniqueValues(ctx context.Context, list, field string, opts ...RequestOption) ([]string, error) {
	listID, err := c.FetchListID(ctx, list, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve list id: %w", err)
	}
	viewID, err := c.FetchListDefaultViewID(ctx, list, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve default view: %w", err)
	}

	endpoint := "/_layouts/15/filter.aspx?ListId={" + listID + "}" +
		"&FieldInternalName='" + field + "'&ViewId={" + viewID + "}&FilterOnly=1&Filter=2"
	resp, err := c.getList(ctx, list, endpoint, opts)
	if err != nil {
		return nil, err
	}
	values, err := parseFilterOptions(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return values, nil
}

// parseFilterOptions collects the non-empty <option> values of a filter.aspx
// page in document order, without duplicates.
func parseFilterOptions(page string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	values := []string{}
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			for _, attr := range n.Attr {
				if attr.Key == "value" && attr.Val != "" && !seen[attr.Val] {
					seen[attr.Val] = true
					values = append(values, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return values, nil
}
