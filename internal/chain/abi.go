package chain

// Contract ABIs, trimmed to the methods and events this service drives. The
// job board owns listings and applications, the factory instantiates one
// escrow unit per approved job, and each escrow unit holds the deposit and
// three checkpoint slots.

const jobBoardABI = `[
{"type":"function","name":"createJobListing","stateMutability":"nonpayable","inputs":[{"name":"_title","type":"string"},{"name":"_description","type":"string"},{"name":"_jobType","type":"string"},{"name":"_deadline","type":"uint256"},{"name":"_minPrice","type":"uint256"},{"name":"_maxPrice","type":"uint256"},{"name":"_paymentAsset","type":"string"},{"name":"_metadataURI","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"applyForJob","stateMutability":"nonpayable","inputs":[{"name":"_jobId","type":"uint256"},{"name":"_proposedPrice","type":"uint256"},{"name":"_cancellationTimeDays","type":"uint256"},{"name":"_estimatedDelivery","type":"string"},{"name":"_portfolioLink","type":"string"}],"outputs":[]},
{"type":"function","name":"approveApplication","stateMutability":"nonpayable","inputs":[{"name":"_jobId","type":"uint256"},{"name":"_applicationIndex","type":"uint256"}],"outputs":[]},
{"type":"function","name":"setEscrow","stateMutability":"nonpayable","inputs":[{"name":"_jobId","type":"uint256"},{"name":"_escrowAddress","type":"address"}],"outputs":[]},
{"type":"function","name":"getEscrow","stateMutability":"view","inputs":[{"name":"_jobId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"setJobActive","stateMutability":"nonpayable","inputs":[{"name":"_jobId","type":"uint256"},{"name":"_isActive","type":"bool"}],"outputs":[]},
{"type":"function","name":"getJob","stateMutability":"view","inputs":[{"name":"_jobId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"jobId","type":"uint256"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"jobType","type":"string"},{"name":"deadline","type":"uint256"},{"name":"minPrice","type":"uint256"},{"name":"maxPrice","type":"uint256"},{"name":"clientAddress","type":"address"},{"name":"createdAt","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"paymentAsset","type":"string"},{"name":"metadataURI","type":"string"}]}]},
{"type":"function","name":"getAllJobs","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"jobId","type":"uint256"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"jobType","type":"string"},{"name":"deadline","type":"uint256"},{"name":"minPrice","type":"uint256"},{"name":"maxPrice","type":"uint256"},{"name":"clientAddress","type":"address"},{"name":"createdAt","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"paymentAsset","type":"string"},{"name":"metadataURI","type":"string"}]}]},
{"type":"function","name":"getActiveJobs","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"jobId","type":"uint256"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"jobType","type":"string"},{"name":"deadline","type":"uint256"},{"name":"minPrice","type":"uint256"},{"name":"maxPrice","type":"uint256"},{"name":"clientAddress","type":"address"},{"name":"createdAt","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"paymentAsset","type":"string"},{"name":"metadataURI","type":"string"}]}]},
{"type":"function","name":"getJobApplications","stateMutability":"view","inputs":[{"name":"_jobId","type":"uint256"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"freelancerAddress","type":"address"},{"name":"proposedPrice","type":"uint256"},{"name":"cancellationTimeDays","type":"uint256"},{"name":"estimatedDelivery","type":"string"},{"name":"portfolioLink","type":"string"},{"name":"appliedAt","type":"uint256"},{"name":"isApproved","type":"bool"}]}]},
{"type":"function","name":"jobCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"JobListingCreated","inputs":[{"name":"jobId","type":"uint256","indexed":true},{"name":"clientAddress","type":"address","indexed":true},{"name":"title","type":"string","indexed":false},{"name":"deadline","type":"uint256","indexed":false},{"name":"paymentAsset","type":"string","indexed":false}]},
{"type":"event","name":"ApplicationSubmitted","inputs":[{"name":"jobId","type":"uint256","indexed":true},{"name":"freelancerAddress","type":"address","indexed":true},{"name":"proposedPrice","type":"uint256","indexed":false},{"name":"applicationIndex","type":"uint256","indexed":false}]},
{"type":"event","name":"ApplicationApproved","inputs":[{"name":"jobId","type":"uint256","indexed":true},{"name":"applicationIndex","type":"uint256","indexed":true},{"name":"freelancerAddress","type":"address","indexed":true}]}
]`

const escrowFactoryABI = `[
{"type":"function","name":"createEscrowAndDeposit","stateMutability":"payable","inputs":[{"name":"_jobId","type":"uint256"},{"name":"_clientAddress","type":"address"},{"name":"_freelancerAddress","type":"address"},{"name":"_finalPrice","type":"uint256"},{"name":"_depositAmount","type":"uint256"},{"name":"_estimatedDeliveryTimestamp","type":"uint256"},{"name":"_cancellationTimeDays","type":"uint256"},{"name":"_paymentToken","type":"address"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getEscrow","stateMutability":"view","inputs":[{"name":"_jobId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"event","name":"EscrowCreated","inputs":[{"name":"jobId","type":"uint256","indexed":true},{"name":"escrowAddress","type":"address","indexed":true},{"name":"clientAddress","type":"address","indexed":true},{"name":"freelancerAddress","type":"address","indexed":false}]}
]`

const escrowUnitABI = `[
{"type":"function","name":"submitCheckpoint","stateMutability":"nonpayable","inputs":[{"name":"_checkpointIndex","type":"uint256"},{"name":"_deliverableRef","type":"string"}],"outputs":[]},
{"type":"function","name":"approveCheckpoint","stateMutability":"nonpayable","inputs":[{"name":"_checkpointIndex","type":"uint256"}],"outputs":[]},
{"type":"function","name":"rejectCheckpoint","stateMutability":"nonpayable","inputs":[{"name":"_checkpointIndex","type":"uint256"}],"outputs":[]},
{"type":"function","name":"cancelJob","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"getCheckpoint","stateMutability":"view","inputs":[{"name":"_checkpointIndex","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"isCompleted","type":"bool"},{"name":"isApproved","type":"bool"},{"name":"deliverableRef","type":"string"},{"name":"submittedAt","type":"uint256"},{"name":"approvedAt","type":"uint256"}]}]},
{"type":"function","name":"getJobStatus","stateMutability":"view","inputs":[],"outputs":[{"name":"_isCancelled","type":"bool"},{"name":"_totalReleased","type":"uint256"},{"name":"_remainingBalance","type":"uint256"}]},
{"type":"function","name":"canCancel","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"clientAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"freelancerAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"finalPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"depositedAmount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"depositedAt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"cancellationTimeDays","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"estimatedDeliveryTimestamp","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"CheckpointSubmitted","inputs":[{"name":"checkpointIndex","type":"uint256","indexed":true},{"name":"deliverableRef","type":"string","indexed":false}]},
{"type":"event","name":"CheckpointApproved","inputs":[{"name":"checkpointIndex","type":"uint256","indexed":true},{"name":"paymentReleased","type":"uint256","indexed":false}]},
{"type":"event","name":"CheckpointRejected","inputs":[{"name":"checkpointIndex","type":"uint256","indexed":true}]},
{"type":"event","name":"FundsDeposited","inputs":[{"name":"clientAddress","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"JobCancelled","inputs":[{"name":"refunded","type":"uint256","indexed":false}]}
]`

const erc20ABI = `[
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const priceOracleABI = `[
{"type":"function","name":"getPrice","stateMutability":"view","inputs":[{"name":"_symbol","type":"string"}],"outputs":[{"name":"price","type":"uint256"},{"name":"decimals","type":"uint256"}]},
{"type":"function","name":"convertUSDToToken","stateMutability":"view","inputs":[{"name":"_usdAmount","type":"uint256"},{"name":"_symbol","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`
