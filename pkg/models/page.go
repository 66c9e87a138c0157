package models

// Page is one page of a list endpoint. Next is the URL of the following
// page taken from the Link response header, empty on the last page.
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
}

func (p *Page[T]) HasNext() bool {
	return p != nil && p.Next != ""
}
