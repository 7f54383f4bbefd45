// Package content holds the resource types served by the site and the bundled
// sample data used when the data service cannot be reached.
package content

import (
	"encoding/json"
	"strings"
	"time"
)

// Resource is what the stores and filters need to know about a record.
type Resource interface {
	ResourceID() string
	ResourceCategory() string
	ResourceStatus() string
	SearchText() string
}

// Kind names a resource collection; it doubles as the REST path segment.
type Kind string

const (
	KindArticles Kind = "articles"
	KindNews     Kind = "news"
	KindUsers    Kind = "users"
	KindUpdates  Kind = "updates"
)

var Kinds = []Kind{KindArticles, KindNews, KindUsers, KindUpdates}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Patch is a partial update forwarded to the data service as-is.
type Patch map[string]any

// Article is a long-form educational post. Content is the block editor
// document and is never interpreted here.
type Article struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	Excerpt   string          `json:"excerpt"`
	Content   json.RawMessage `json:"content,omitempty"`
	Category  string          `json:"category"`
	Status    string          `json:"status"`
	Author    string          `json:"author"`
	Tags      []string        `json:"tags,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	Views     int             `json:"views"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ArticleInput struct {
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Excerpt  string          `json:"excerpt"`
	Content  json.RawMessage `json:"content,omitempty"`
	Category string          `json:"category"`
	Status   string          `json:"status"`
	Author   string          `json:"author"`
	Tags     []string        `json:"tags,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

func (a Article) ResourceID() string       { return a.ID }
func (a Article) ResourceCategory() string { return a.Category }
func (a Article) ResourceStatus() string   { return a.Status }
func (a Article) SearchText() string {
	return joinText(a.Title, a.Excerpt, a.Author, strings.Join(a.Tags, " "))
}

// News is a short market or industry headline linking to an external source.
type News struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewsInput struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

func (n News) ResourceID() string       { return n.ID }
func (n News) ResourceCategory() string { return n.Category }
func (n News) ResourceStatus() string   { return n.Status }
func (n News) SearchText() string       { return joinText(n.Title, n.Summary, n.Source) }

// User is an entry in the platform user directory.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (u User) ResourceID() string       { return u.ID }
func (u User) ResourceCategory() string { return u.Role }
func (u User) ResourceStatus() string   { return u.Status }
func (u User) SearchText() string       { return joinText(u.Name, u.Email) }

// Update is a platform changelog post.
type Update struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Kind        string    `json:"kind"`
	Version     string    `json:"version"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UpdateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

func (u Update) ResourceID() string       { return u.ID }
func (u Update) ResourceCategory() string { return u.Kind }
func (u Update) ResourceStatus() string   { return u.Status }
func (u Update) SearchText() string       { return joinText(u.Title, u.Description, u.Version) }

func joinText(parts ...string) string {
	return strings.Join(parts, "\n")
}
