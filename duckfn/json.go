package duckfn

// JSONExtract returns the JSON value at path within doc.
func JSONExtract(doc Expr, path string) Expr {
	return call("json_extract", doc, path)
}

// JSONExtractString returns the unquoted string at path within doc.
func JSONExtractString(doc Expr, path string) Expr {
	return call("json_extract_string", doc, path)
}

// JSONValid reports whether doc holds valid JSON text.
func JSONValid(doc Expr) Expr {
	return call("json_valid", doc)
}

// JSONType returns the JSON type tag of doc.
func JSONType(doc Expr) Expr {
	return call("json_type", doc)
}

// ToJSON converts a value or expression to JSON.
func ToJSON(v any) Expr {
	return call("to_json", v)
}

// RowToJSON converts a struct or row expression to a JSON object.
func RowToJSON(row Expr) Expr {
	return call("row_to_json", row)
}

// JSONGroupArray aggregates values into a JSON array.
func JSONGroupArray(v Expr) Expr {
	return call("json_group_array", v)
}

// JSONGroupObject aggregates key/value pairs into a JSON object.
func JSONGroupObject(key, value Expr) Expr {
	return call("json_group_object", key, value)
}

// JSONMergePatch merges b into a following RFC 7386.
func JSONMergePatch(a, b any) Expr {
	return call("json_merge_patch", a, b)
}
