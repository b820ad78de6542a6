// Package workorders manages maintenance work orders. Assigning a work order
// to a service provider materializes an access assignment, granting the
// provider read visibility into the association for the life of the order;
// closing or cancelling the order revokes it.
package workorders
