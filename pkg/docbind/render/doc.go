// Package render repairs template tokens that word processors split across runs.
//
// Word splits the text of a paragraph into runs whenever formatting, spell checking or
// revision tracking changes mid-word, so a placeholder typed as {{customer.name}} may be
// stored as three runs: "{{cust", "omer.na" and "me}}". The resolution engine works on
// plain text and would never see the token. RepairFragments walks every paragraph and
// collapses each split token back into its first run.
//
// # Structure Organization
//
//   - repair.go: RepairFragments, RepairFragmentsWith and the merge rules
//
// # Merge Rules
//
// Within a paragraph, sibling text runs are visited left to right:
//
//   - A run whose text has more opening than closing markers for any delimiter pair
//     starts a pending merge.
//   - Following runs are absorbed until every delimiter pair is balanced again. The
//     merged run keeps the first run's start tag, the first non-empty run properties and
//     a single text leaf, flagged xml:space="preserve" when the text has outer whitespace.
//   - A non-text run (break, tab, drawing), a run under a different parent element
//     (hyperlinks) or the end of the paragraph abandons the pending merge and leaves the
//     absorbed runs as they were.
//
// Everything outside the rewritten runs is copied byte-for-byte.
//
// # Design Principles
//
// Pure Functions: the package keeps no state, does not log and does not import
// docbind, so it can be used and tested on its own.
//
// # Usage
//
//	repaired := render.RepairFragments(documentXML)
//
//	// DrawingML text bodies, reporting scan errors
//	repaired, err := render.RepairFragmentsWith(slideXML, render.Options{
//	    Vocabulary: xml.DrawingML,
//	})
package render
