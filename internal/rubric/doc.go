// Package rubric models the named, ordered, weighted list of compliance
// checks an audit run evaluates. Runs operate on an immutable snapshot so
// concurrent rubric edits cannot corrupt an in-flight audit.
package rubric
