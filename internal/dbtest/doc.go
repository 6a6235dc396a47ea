/*
Package dbtest starts throwaway Neo4j containers for integration tests, on top
of testcontainers-go and its neo4j module.

Use it when a test needs a working database and does not care how it is
deployed. Tests depending on a particular deployment should configure the
testcontainers-go modules themselves.

After a failure, the container can be kept alive for manual inspection:

	go test ./neo4jview -dbtest.inspect

Tests only.
*/
package dbtest
