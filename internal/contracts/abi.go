// Package contracts carries the ABI fragments this service calls. Only the
// entry points the engine actually uses are listed; the deployed contracts
// expose more.
package contracts

// EscrowCoreABI covers fee lookup and the escrow lifecycle entry points.
const EscrowCoreABI = `[
  {"type":"function","name":"getUserFeePercentage","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userSubscriptionTier","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"getEscrowStatus","stateMutability":"view","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"createEscrow","stateMutability":"payable","inputs":[{"name":"seller","type":"address"},{"name":"amount","type":"uint256"},{"name":"disputeWindow","type":"uint256"},{"name":"metadata","type":"string"}],"outputs":[]},
  {"type":"function","name":"createEscrowWithTemplate","stateMutability":"payable","inputs":[{"name":"seller","type":"address"},{"name":"amount","type":"uint256"},{"name":"disputeWindow","type":"uint256"},{"name":"metadata","type":"string"},{"name":"templateId","type":"string"},{"name":"approvers","type":"address[]"}],"outputs":[]},
  {"type":"function","name":"batchCreateEscrows","stateMutability":"payable","inputs":[{"name":"sellers","type":"address[]"},{"name":"amounts","type":"uint256[]"},{"name":"disputeWindows","type":"uint256[]"},{"name":"metadatas","type":"string[]"}],"outputs":[]},
  {"type":"function","name":"fundEscrow","stateMutability":"payable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"markDelivered","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"confirmDelivery","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"raiseDispute","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"cancelEscrow","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approveEscrow","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"EscrowCreated","inputs":[{"name":"escrowId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"seller","type":"address","indexed":true}],"anonymous":false}
]`

// SubscriptionManagerABI covers the tier-level fee reads used as the fallback
// fee source.
const SubscriptionManagerABI = `[
  {"type":"function","name":"getUserFeeTier","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPlanFeeTier","stateMutability":"view","inputs":[{"name":"planKey","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]}
]`
