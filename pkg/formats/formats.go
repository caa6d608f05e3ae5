// Package formats provides parsers and writers for keyframe animation files.
package formats
