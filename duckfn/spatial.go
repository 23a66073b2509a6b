package duckfn

// STPoint builds a point geometry from x and y coordinates.
func STPoint(x, y any) Expr {
	return call("ST_Point", x, y)
}

// STDistance measures the distance between two geometries.
func STDistance(a, b Expr) Expr {
	return call("ST_Distance", a, b)
}

// STWithin reports whether geometry a lies within geometry b.
func STWithin(a, b Expr) Expr {
	return call("ST_Within", a, b)
}

// STAsGeoJSON renders a geometry as GeoJSON text.
func STAsGeoJSON(g Expr) Expr {
	return call("ST_AsGeoJSON", g)
}

// STAsText renders a geometry as WKT.
func STAsText(g Expr) Expr {
	return call("ST_AsText", g)
}

// STGeomFromText parses WKT into a geometry.
func STGeomFromText(wkt any) Expr {
	return call("ST_GeomFromText", wkt)
}

// STX extracts the x coordinate of a point.
func STX(g Expr) Expr {
	return call("ST_X", g)
}

// STY extracts the y coordinate of a point.
func STY(g Expr) Expr {
	return call("ST_Y", g)
}

// STRead scans a spatial file (GeoJSON, shapefile, GeoPackage) as a
// table. Like the other file scans it renders the path as a literal.
func STRead(path string) Expr {
	return Expr{SQL: "ST_Read(" + quoteString(path) + ")"}
}
