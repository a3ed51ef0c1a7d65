package tracing

// Span attribute keys used by moorage
const (
	AttrKeyMoorageErrorCode   = "moorage.error.code"
	AttrKeyMoorageFieldName   = "moorage.field.name"
	AttrKeyMoorageDocURI      = "moorage.doc.uri"
	AttrKeyMoorageCommitGroup = "moorage.commit.group"
	AttrKeyMoorageScheme      = "moorage.adapter.scheme"
)
