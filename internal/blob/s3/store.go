package s3blob

// Store combines a Writer and Reader over one bucket.
type Store struct {
	*Writer
	*Reader
}

// NewStore creates a Store for the client's bucket.
func NewStore(c *Client) *Store {
	return &Store{Writer: NewWriter(c), Reader: NewReader(c)}
}
