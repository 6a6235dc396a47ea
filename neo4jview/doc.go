/*
Package neo4jview mirrors the knowledge graphs committed by a digital twin into
a Neo4j database, where they can be queried and browsed outside the modeler.

A Mirror is a modeler.Viewer: register it with the Peer of a scope (usually as
its knowledge-graph view) and every KnowledgeGraphCommitted message is written
to the database in a single transaction.

	if err := neo4jview.Bootstrap(ctx, driver, "twin"); err != nil {
		return err
	}
	peer.SetKnowledgeGraphView(neo4jview.NewMirror(ctx, driver, "twin"))

Nodes are merged by their ID into :Entity nodes, edges into :RELATES
relationships keyed by their relation, and each commit is recorded as a :Commit
node holding the content address of the graph.
*/
package neo4jview
