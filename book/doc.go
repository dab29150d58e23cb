// Package book compiles the markdown book format into a pipeline Document and prints it back.
//
// A book has a head and a list of template sections:
//
//	# Write a poem
//
//	Writes a short poem about a topic.
//
//	- INPUT PARAMETER {topic} The topic of the poem
//	- OUTPUT PARAMETER {poem} The poem
//
//	## Poem
//
//	- EXPECT MIN 5 WORDS
//
//	```text
//	Write a poem about {topic}
//	```
//
//	`-> {poem}`
//
// Compile only checks syntax. Validate checks the pipeline logic: declared parameters, single
// producers and an acyclic dependency graph.
package book
