/*
Package dataset loads and writes daily weather observation logs.

Logs are CSV tables with a header row and one observation per record, by
default with the columns "dia" (an integer day) and "estado" (the state
label). A Source produces the observations of a log from wherever it lives:
a local file, an S3 object, or any io.Reader. Records are validated here so
the estimator only ever sees well-formed observations.
*/
package dataset
