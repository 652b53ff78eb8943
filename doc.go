/*

Package lorawan provides tools to read and write LoRaWAN 1.0.x messages and
the cryptographic operations defined over them: MIC computation and
validation, FRMPayload encryption, join-accept encryption and session-key
derivation.

It implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
interfaces on all frame types. The device MAC layer built on top of this
package lives in the device sub-package, regional channel plans in band.

*/
package lorawan
