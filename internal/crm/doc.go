// Package crm implements the HTTP client for the CRM that owns cases,
// recordings, and transcripts. The pipeline consumes it through narrow ports;
// this package only does transport and payload conversion.
package crm
