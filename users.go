package sprest

import (
	"context"
	"strconv"
	"strings"
)

// User is the signed-in principal as reported by /_api/web/currentuser.
type User struct {
	ID          int    `json:"Id"`
	Title       string `json:"Title"`
	Email       string `json:"Email"`
	LoginName   string `json:"LoginName"`
	IsSiteAdmin bool   `json:"IsSiteAdmin"`
}

// FetchGroupUsersByName returns the members of a site group. group is
// resolved through Config.Groups first.
func (c *Client) FetchGroupUsersByName(ctx context.Context, group, query string, opts ...RequestOption) ([]Item, error) {
	endpoint := "/_api/web/sitegroups/GetByName(" + literal(c.Group(group)) + ")/users"
	return c.getItems(ctx, "", withQuery(endpoint, query), opts)
}

// FetchGroupUsersByID returns the members of a site group by its numeric id.
func (c *Client) FetchGroupUsersByID(ctx context.Context, id int, query string, opts ...RequestOption) ([]Item, error) {
	endpoint := "/_api/web/sitegroups/GetById(" + strconv.Itoa(id) + ")/users"
	return c.getItems(ctx, "", withQuery(endpoint, query), opts)
}

// FetchCurrentUserProperties returns the user profile of the signed-in user
// restricted to the given properties. No columns returns the full profile.
func (c *Client) FetchCurrentUserProperties(ctx context.Context, columns []string, opts ...RequestOption) (Item, error) {
	endpoint := "/_api/SP.UserProfiles.PeopleManager/GetMyProperties"
	if len(columns) > 0 {
		endpoint += "?$select=" + strings.Join(columns, ",")
	}
	return c.getItem(ctx, "", endpoint, opts)
}

// CurrentUser returns the signed-in user of the web.
func (c *Client) CurrentUser(ctx context.Context, opts ...RequestOption) (*User, error) {
	item, err := c.getItem(ctx, "", "/_api/web/currentuser?$select=Id,Title,Email,LoginName,IsSiteAdmin", opts)
	if err != nil {
		return nil, err
	}
	var u User
	if err := item.Into(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
