/*

Package base provides base functions for glrm.

The base functions include:

* Seeded Random Generators

* CSV Reading

*/
package base
