/*
Package folio compiles and runs prompt books.

A book is a markdown document describing a pipeline of templates. Each template
renders its content with parameter values, sends it to a model or substitutes it
directly, checks the answer against its expectations and stores it in a
resulting parameter that later templates can use.

The work is split over these packages:

  - book compiles book source into a Document, validates it and prints it back.
  - expect checks answers against count and format expectations.
  - knowledge fetches knowledge sources, splits them into pieces and caches them.
  - prepare turns a Document and its knowledge into a runnable pipeline.
  - provider abstracts model APIs and joins several of them with fallback.
  - executor runs a prepared pipeline and reports every template.
  - storage persists prepared knowledge in memory or in badger.
  - events and remote expose the executor over websocket sessions.
  - config loads folio.yaml and builds providers, storage and server options.

The folio command in cmd/folio wraps all of it:

	folio compile article.book.md -o article.json
	folio run article.book.md -p topic=tea
	folio serve
*/
package folio
