// Package sandbox executes hook and assertion scripts.
//
// A script is a list of lines. Every non-blank line that is not a //
// comment is one expr-lang expression evaluated against the context
// bundle; a trailing semicolon is ignored. Lines run in order and the
// first failing line stops the script.
//
// Hook scripts see the environment through functions:
//
//	environment.set("transferId", uuid())
//	environment.get("transferId")
//	environment.unset("transferId")
//	environment.has("transferId")
//	console.log("status", response.code)
//
// Assertion scripts see the environment as plain data and use a chai
// style helper:
//
//	expect(response.status).to.equal(202)
//	expect(callback.body.transferState).to.be.oneOf(["COMMITTED", "RESERVED"])
//	expect(response.body).to.have.property("quoteId")
//	jsonSchema(callback.body, {"type": "object", "required": ["quoteId"]})
package sandbox
