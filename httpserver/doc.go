/*
Package httpserver serves the credential registry client operations as a JSON API.

Every operation responds with a result object carrying either a message or an error
text, and optional data:

	{"message": "Credential found for Student ID: 101, School ID: 1001", "data": {...}}
	{"error": "Failed to revoke credential: Credential already revoked"}

The HTTP status reflects the failure class: 400 for rejected input, 404 for missing
records, 409 while another operation is running, 412 when no account is connected or
the wallet is on the wrong network, 422 for contract reverts and 502 when the node or a
pinning backend could not be reached. A failed verification is a completed query and
returns 200 with the verification flags.

# Endpoints

  - GET    /api/session - Current wallet session
  - POST   /api/session/connect - Request wallet access and bind the registry
  - GET    /api/institutions - List registered institutions
  - POST   /api/institutions - Register an institution (owner only)
  - GET    /api/institutions/{address} - Institution details
  - GET    /api/institutions/{address}/status - Registration status
  - GET    /api/documents/selected - Currently selected document
  - POST   /api/documents - Select and hash a document (multipart "file" field or raw body)
  - POST   /api/documents/pin - Pin the selected document to IPFS
  - POST   /api/credentials - Store a credential (registered institutions only)
  - GET    /api/credentials/{studentId}/{schoolId} - Search a credential
  - DELETE /api/credentials/{studentId}/{schoolId} - Revoke a credential
  - POST   /api/credentials/{studentId}/{schoolId}/verify - Verify a document hash
  - GET    /livez, /readyz, /drain, /undrain - Health and drain control

Write operations respond once their transaction is confirmed, failed or timed out, so the
server WriteTimeout must exceed the confirmation timeout.
*/
package httpserver
