// Package builtin provides the function table behind {$function.*}
// placeholders in callspec plans.
//
// Available functions include:
//   - generic.generateUUID, uuid: Random UUID v4
//   - generic.generateID: Compact 32 character hex identifier
//   - generic.curDate, now: Current UTC date/time
//   - generic.curDateISO: Current time in ISO 8601 with milliseconds
//   - timestamp, timestampMs: Unix time
//   - random(min, max), randomString(length): Random values
//   - base64(value), sha256(value), urlEncode(value): Encoders
//
// Functions receive the plan input values and the current request, so a
// function may derive its result from either.
package builtin
