package config

const (
	// MaxTitleLength is the maximum length for node titles. Limited to 255
	// to fit in PostgreSQL VARCHAR(255) and provide reasonable UX.
	MaxTitleLength = 255

	// MaxSlugAttempts bounds collision suffixing when deriving a slug among
	// siblings. Past this the create fails with a conflict instead of
	// probing forever.
	MaxSlugAttempts = 50

	// MaxTagCount caps tags per document in the metadata side-table.
	MaxTagCount = 64

	// MaxTagLength caps a single tag.
	MaxTagLength = 100
)
