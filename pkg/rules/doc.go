// Package rules decides what happens to a mutated cell before it reaches the broker.
//
// A rule set holds two ordered lists:
//
//   - drop rules: a cell matching any of them is excluded and never published
//   - route rules: every matching rule contributes its topic, in declaration order
//
// Drop rules are always evaluated first. A rule matches on an optional table,
// an optional column family and an optional qualifier pattern. The qualifier
// pattern may carry a single `*` wildcard at its start, its end, or both:
//
//	dhold:*   qualifiers starting with "dhold:"
//	*pickme   qualifiers ending with "pickme"
//	*pickme*  qualifiers starting OR ending with "pickme" (not containing it)
//
// Rule files are XML (the legacy format) or YAML/JSON/TOML:
//
//	<rules>
//	  <rule action="drop" table="default:MyTable" columnFamily="data" qualifier="dhold:*"/>
//	  <rule action="route" table="default:MyTable" columnFamily="data" topic="mytopic"/>
//	</rules>
//
//	rules:
//	  - action: drop
//	    table: default:MyTable
//	    columnFamily: data
//	    qualifier: "dhold:*"
//	  - action: route
//	    table: default:MyTable
//	    topic: mytopic
//
// The active rule set lives in a Store and is replaced atomically on reload.
// A reload that fails to parse leaves the previous rule set in place.
package rules
